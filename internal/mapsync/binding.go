package mapsync

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/manifestmap/internal/core/ports"
)

var (
	ErrAlreadyMounted = errors.New("mapsync: binding already mounted")
	ErrNotMounted     = errors.New("mapsync: binding not mounted")
)

// Binding owns one GeoJSON source and the layers drawn from it. It moves
// between two states: unmounted (the zero value) and mounted.
//
// The id is supplied by the caller and must be unique among bindings
// mounted on the same host at the same time. Two bindings sharing an id
// leave both lifecycles entangled; this is not detected.
type Binding struct {
	// Logger receives cleanup diagnostics. Nil means slog.Default().
	Logger *slog.Logger

	host    ports.MapHost
	id      string
	layers  []string // in add order
	mounted bool
}

// Mount registers an empty source under id and then the layers of spec.
// If the host rejects a layer, whatever this call added is removed again
// and the binding stays unmounted.
func (b *Binding) Mount(host ports.MapHost, id string, spec LayerSpec) error {
	if b.mounted {
		return ErrAlreadyMounted
	}
	if host == nil || id == "" || spec == nil {
		return fmt.Errorf("mapsync: mount needs a host, an id and a layer spec")
	}

	if err := host.AddSource(id, geojson.NewFeatureCollection()); err != nil {
		return fmt.Errorf("mount %s: add source: %w", id, err)
	}
	b.host, b.id, b.layers, b.mounted = host, id, nil, true

	if err := b.addLayers(spec); err != nil {
		_ = b.Unmount()
		return fmt.Errorf("mount %s: %w", id, err)
	}
	return nil
}

// Update replaces the source's features. An unmounted binding ignores the
// call, since updates can race with teardown during rapid config changes.
// A nil collection clears the source.
func (b *Binding) Update(fc *geojson.FeatureCollection) error {
	if !b.mounted {
		return nil
	}
	src, ok := b.host.GetSource(b.id)
	if !ok {
		return nil
	}
	if fc == nil {
		fc = geojson.NewFeatureCollection()
	}
	if err := src.SetData(fc); err != nil {
		return fmt.Errorf("update %s: %w", b.id, err)
	}
	return nil
}

// Rebind swaps the layer definitions for those of spec while keeping the
// source and its current data. Layout properties cannot be patched in
// place, so this is how render config changes take effect.
func (b *Binding) Rebind(spec LayerSpec) error {
	if !b.mounted {
		return ErrNotMounted
	}
	if spec == nil {
		return fmt.Errorf("rebind %s: nil layer spec", b.id)
	}
	if err := b.removeLayers(); err != nil {
		return fmt.Errorf("rebind %s: %w", b.id, err)
	}
	if err := b.addLayers(spec); err != nil {
		return fmt.Errorf("rebind %s: %w", b.id, err)
	}
	return nil
}

// Unmount removes the layers in reverse add order and then the source.
// Each removal is skipped when the host no longer has the item, so the call
// is safe on partial mounts and may be repeated. The binding always ends up
// unmounted; host failures are reported after the fact.
func (b *Binding) Unmount() error {
	if !b.mounted {
		return nil
	}
	var errs []error
	if err := b.removeLayers(); err != nil {
		errs = append(errs, err)
	}
	if _, ok := b.host.GetSource(b.id); ok {
		if err := b.host.RemoveSource(b.id); err != nil {
			errs = append(errs, fmt.Errorf("remove source %s: %w", b.id, err))
		}
	}
	b.mounted = false
	b.layers = nil

	if err := errors.Join(errs...); err != nil {
		b.logger().Warn("binding teardown incomplete", "binding", b.id, "error", err)
		return err
	}
	return nil
}

// Mounted reports the lifecycle state.
func (b *Binding) Mounted() bool { return b.mounted }

// ID returns the id given to the last Mount.
func (b *Binding) ID() string { return b.id }

// LayerIDs returns the ids of the layers currently owned, in add order.
func (b *Binding) LayerIDs() []string {
	return append([]string(nil), b.layers...)
}

func (b *Binding) addLayers(spec LayerSpec) error {
	for _, l := range spec.Layers(b.id) {
		if err := b.host.AddLayer(l); err != nil {
			return fmt.Errorf("add layer %s: %w", l.ID, err)
		}
		b.layers = append(b.layers, l.ID)
	}
	return nil
}

func (b *Binding) removeLayers() error {
	var errs []error
	for i := len(b.layers) - 1; i >= 0; i-- {
		id := b.layers[i]
		if _, ok := b.host.GetLayer(id); !ok {
			continue
		}
		if err := b.host.RemoveLayer(id); err != nil {
			errs = append(errs, fmt.Errorf("remove layer %s: %w", id, err))
		}
	}
	b.layers = nil
	return errors.Join(errs...)
}

func (b *Binding) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}
