package http

import (
	"sort"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/manifestmap/internal/core/domain"
	"github.com/samirrijal/manifestmap/internal/core/usecases"
)

// buildSchema creates the GraphQL schema wired to the map service.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	manifestType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Manifest",
		Fields: graphql.Fields{
			"manifest_no":    &graphql.Field{Type: graphql.String},
			"road_show_load": &graphql.Field{Type: graphql.String},
			"type":           &graphql.Field{Type: graphql.String},
			"date":           &graphql.Field{Type: graphql.String},
			"start_time":     &graphql.Field{Type: graphql.String},
			"trailer":        &graphql.Field{Type: graphql.String},
			"driver":         &graphql.Field{Type: graphql.String},
			"registration":   &graphql.Field{Type: graphql.String},
		},
	})

	jobType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Job",
		Fields: graphql.Fields{
			"row_id":    &graphql.Field{Type: graphql.String},
			"collect":   &graphql.Field{Type: graphql.String},
			"deliver":   &graphql.Field{Type: graphql.String},
			"postcode":  &graphql.Field{Type: graphql.String},
			"delivered": &graphql.Field{Type: graphql.Boolean},
			"located":   &graphql.Field{Type: graphql.Boolean},
		},
	})

	jobGroupType := graphql.NewObject(graphql.ObjectConfig{
		Name: "JobGroup",
		Fields: graphql.Fields{
			"job_order": &graphql.Field{Type: graphql.String},
			"delivered": &graphql.Field{Type: graphql.Boolean},
			"jobs":      &graphql.Field{Type: graphql.NewList(jobType)},
		},
	})

	sourceCountType := graphql.NewObject(graphql.ObjectConfig{
		Name: "SourceCount",
		Fields: graphql.Fields{
			"source":   &graphql.Field{Type: graphql.String},
			"features": &graphql.Field{Type: graphql.Int},
		},
	})

	sessionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Session",
		Fields: graphql.Fields{
			"id":              &graphql.Field{Type: graphql.String},
			"vehicle":         &graphql.Field{Type: graphql.String},
			"device_id":       &graphql.Field{Type: graphql.Int},
			"day":             &graphql.Field{Type: graphql.String},
			"icon_scale":      &graphql.Field{Type: graphql.Float},
			"show_titles":     &graphql.Field{Type: graphql.Boolean},
			"jobs":            &graphql.Field{Type: graphql.Int},
			"job_orders":      &graphql.Field{Type: graphql.Int},
			"delivered":       &graphql.Field{Type: graphql.Int},
			"stops":           &graphql.Field{Type: graphql.Int},
			"positions":       &graphql.Field{Type: graphql.Int},
			"distance_meters": &graphql.Field{Type: graphql.Float},
			"manifest":        &graphql.Field{Type: manifestType},
			"features":        &graphql.Field{Type: graphql.NewList(sourceCountType)},
			"job_groups": &graphql.Field{
				Type:        graphql.NewList(jobGroupType),
				Description: "Jobs grouped by order",
				Args: graphql.FieldConfigArgument{
					"pending": &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: false},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Source.(map[string]interface{})["id"].(string)
					groups, err := deps.Maps.JobGroups(id)
					if err != nil {
						return nil, err
					}
					pending := p.Args["pending"].(bool)
					var result []map[string]interface{}
					for _, g := range groups {
						if pending && g.Delivered {
							continue
						}
						result = append(result, jobGroupMap(g))
					}
					return result, nil
				},
			},
			"source": &graphql.Field{
				Type:        graphql.String,
				Description: "GeoJSON held by one of the session's sources",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Source.(map[string]interface{})["id"].(string)
					fc, err := deps.Maps.Source(id, p.Args["id"].(string))
					if err != nil {
						return nil, err
					}
					data, err := fc.MarshalJSON()
					if err != nil {
						return nil, err
					}
					return string(data), nil
				},
			},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"sessions": &graphql.Field{
				Type:        graphql.NewList(sessionType),
				Description: "Every open map session",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					var result []map[string]interface{}
					for _, id := range deps.Maps.Sessions() {
						sum, err := deps.Maps.Summary(id)
						if err != nil {
							// closed since listing
							continue
						}
						result = append(result, sessionMap(sum))
					}
					return result, nil
				},
			},
			"session": &graphql.Field{
				Type:        sessionType,
				Description: "Get a map session by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					sum, err := deps.Maps.Summary(p.Args["id"].(string))
					if err != nil {
						return nil, err
					}
					return sessionMap(sum), nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

func sessionMap(sum *usecases.Summary) map[string]interface{} {
	m := map[string]interface{}{
		"id":              sum.SessionID,
		"vehicle":         sum.Vehicle,
		"device_id":       sum.DeviceID,
		"day":             sum.Day,
		"icon_scale":      sum.Render.IconScale,
		"show_titles":     sum.Render.ShowTitles,
		"jobs":            sum.Jobs,
		"job_orders":      sum.JobOrders,
		"delivered":       sum.Delivered,
		"stops":           sum.Stops,
		"positions":       sum.Positions,
		"distance_meters": sum.DistanceMeters,
	}
	if mf := sum.Manifest; mf != nil {
		m["manifest"] = map[string]interface{}{
			"manifest_no":    mf.ManifestNo.String(),
			"road_show_load": mf.RoadShowLoad.String(),
			"type":           mf.ManifestType,
			"date":           mf.MDate,
			"start_time":     mf.StartTime,
			"trailer":        mf.TrlName,
			"driver":         mf.DriverShortName,
			"registration":   mf.Registration,
		}
	}

	sources := make([]string, 0, len(sum.Features))
	for s := range sum.Features {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	counts := make([]map[string]interface{}, 0, len(sources))
	for _, s := range sources {
		counts = append(counts, map[string]interface{}{"source": s, "features": sum.Features[s]})
	}
	m["features"] = counts
	return m
}

func jobGroupMap(g domain.JobGroup) map[string]interface{} {
	jobs := make([]map[string]interface{}, 0, len(g.Jobs))
	for _, j := range g.Jobs {
		jobs = append(jobs, map[string]interface{}{
			"row_id":    j.RowID.String(),
			"collect":   j.Collect1,
			"deliver":   j.Deliver1,
			"postcode":  j.DPostCode,
			"delivered": j.Delivered(),
			"located":   j.HasLocation(),
		})
	}
	return map[string]interface{}{
		"job_order": g.JobOrder,
		"delivered": g.Delivered,
		"jobs":      jobs,
	}
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.Query == "" {
			return errBadRequest(c, "query is required")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
