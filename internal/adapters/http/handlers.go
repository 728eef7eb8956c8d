package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/manifestmap/internal/core/domain"
	"github.com/samirrijal/manifestmap/internal/core/usecases"
)

type manifestRequest struct {
	ManifestNo string `json:"manifest_no"`
}

type renderRequest struct {
	ViewportWidth int      `json:"viewport_width"`
	IconScale     *float64 `json:"icon_scale,omitempty"`
	ShowTitles    bool     `json:"show_titles"`
}

type pointRequest struct {
	Lon *float64 `json:"lon"`
	Lat *float64 `json:"lat"`
}

// point validates a pointer position. Both coordinates are required.
func (p pointRequest) point() (lon, lat float64, msg string) {
	if p.Lon == nil || p.Lat == nil {
		return 0, 0, "lon and lat are required"
	}
	if *p.Lat < -90 || *p.Lat > 90 {
		return 0, 0, "lat must be between -90 and 90"
	}
	if *p.Lon < -180 || *p.Lon > 180 {
		return 0, 0, "lon must be between -180 and 180"
	}
	return *p.Lon, *p.Lat, ""
}

// OpenSessionHandler opens a map session for a vehicle.
func OpenSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req usecases.OpenRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		req.Vehicle = strings.TrimSpace(req.Vehicle)
		if req.ViewportWidth < 0 {
			return errBadRequest(c, "viewport_width must not be negative")
		}

		sum, err := deps.Maps.Open(c.UserContext(), req)
		if err != nil {
			return fromError(c, err)
		}
		LoggerFromCtx(c.UserContext()).Info("session opened", "session", sum.SessionID, "vehicle", sum.Vehicle)

		c.Location("/v1/sessions/" + sum.SessionID)
		return c.Status(fiber.StatusCreated).JSON(sum)
	}
}

// ListSessionsHandler returns the ids of open sessions.
func ListSessionsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"sessions": deps.Maps.Sessions()})
	}
}

// GetSessionHandler returns a session summary.
func GetSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sum, err := deps.Maps.Summary(c.Params("id"))
		if err != nil {
			return fromError(c, err)
		}
		return c.JSON(sum)
	}
}

// CloseSessionHandler unmounts a session's layers and forgets it.
func CloseSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Maps.Close(c.Params("id")); err != nil {
			return fromError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// StyleHandler returns the session's MapLibre style document.
func StyleHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		data, err := deps.Maps.Style(c.Params("id"))
		if err != nil {
			return fromError(c, err)
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Send(data)
	}
}

// SourceHandler returns the GeoJSON held by one source of a session.
func SourceHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fc, err := deps.Maps.Source(c.Params("id"), c.Params("source"))
		if err != nil {
			return fromError(c, err)
		}
		data, err := fc.MarshalJSON()
		if err != nil {
			return errInternal(c, err.Error())
		}
		c.Set(fiber.HeaderContentType, "application/geo+json")
		return c.Send(data)
	}
}

// JobGroupsHandler returns the session's jobs grouped by order.
func JobGroupsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		groups, err := deps.Maps.JobGroups(c.Params("id"))
		if err != nil {
			return fromError(c, err)
		}

		offset, limit := pageParams(c, 50, 200)
		if c.QueryBool("pending") {
			kept := groups[:0]
			for _, g := range groups {
				if !g.Delivered {
					kept = append(kept, g)
				}
			}
			groups = kept
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: len(groups)}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: page(groups, offset, limit), Pagination: pg})
	}
}

// LoadManifestHandler switches a session to a manifest by load number.
func LoadManifestHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req manifestRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		sum, err := deps.Maps.LoadManifest(c.UserContext(), c.Params("id"), strings.TrimSpace(req.ManifestNo))
		if err != nil {
			return fromError(c, err)
		}
		return c.JSON(sum)
	}
}

// RefreshHandler reloads a session from the upstreams, bypassing the cache.
func RefreshHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sum, err := deps.Maps.Refresh(c.UserContext(), c.Params("id"))
		if err != nil {
			return fromError(c, err)
		}
		return c.JSON(sum)
	}
}

// RenderHandler applies a new viewport width or icon preference.
func RenderHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req renderRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.ViewportWidth < 0 {
			return errBadRequest(c, "viewport_width must not be negative")
		}
		cfg, err := deps.Maps.SetRenderConfig(c.Params("id"), req.ViewportWidth, req.IconScale, req.ShowTitles)
		if err != nil {
			return fromError(c, err)
		}
		return c.JSON(cfg)
	}
}

// ClickHandler clicks the session's map and returns any popups opened.
func ClickHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req pointRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		lon, lat, msg := req.point()
		if msg != "" {
			return errBadRequest(c, msg)
		}
		popups, err := deps.Maps.Click(c.Params("id"), lon, lat)
		if err != nil {
			return fromError(c, err)
		}
		if popups == nil {
			popups = []domain.Popup{}
		}
		return c.JSON(fiber.Map{"popups": popups})
	}
}

// HoverHandler moves the pointer and returns the resulting cursor.
func HoverHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req pointRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		lon, lat, msg := req.point()
		if msg != "" {
			return errBadRequest(c, msg)
		}
		cursor, err := deps.Maps.Hover(c.Params("id"), lon, lat)
		if err != nil {
			return fromError(c, err)
		}
		return c.JSON(fiber.Map{"cursor": cursor})
	}
}
