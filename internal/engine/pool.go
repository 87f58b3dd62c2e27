package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"captioner/internal/logging"
	"captioner/internal/services"
)

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("engine pool closed")

type entry struct {
	ready  chan struct{}
	handle *Handle
	err    error
}

// Pool caches loaded engines for the life of the process.
type Pool struct {
	loader Loader
	logger *slog.Logger

	mu      sync.Mutex
	entries map[Key]*entry
	closed  bool
}

// NewPool creates an empty pool backed by loader.
func NewPool(loader Loader, logger *slog.Logger) *Pool {
	return &Pool{
		loader:  loader,
		logger:  logging.NewComponentLogger(logger, "engine-pool"),
		entries: make(map[Key]*entry),
	}
}

// Acquire returns the shared handle for (kind, cfg), loading it on first use.
// Concurrent callers for the same key wait for the first load. A failed load
// is not cached. The load itself is detached from ctx, which only bounds how
// long this caller waits.
func (p *Pool) Acquire(ctx context.Context, kind Kind, cfg Config) (*Handle, error) {
	key := cfg.key(kind)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	pending, ok := p.entries[key]
	if !ok {
		pending = &entry{ready: make(chan struct{})}
		p.entries[key] = pending
		go p.fill(context.WithoutCancel(ctx), key, cfg, pending)
	}
	p.mu.Unlock()

	select {
	case <-pending.ready:
		if pending.err != nil {
			return nil, pending.err
		}
		return pending.handle, nil
	case <-ctx.Done():
		return nil, services.Wrap(services.ErrTimeout, string(kind), "acquire engine", "Cancelled while waiting for engine load", ctx.Err())
	}
}

func (p *Pool) fill(ctx context.Context, key Key, cfg Config, pending *entry) {
	handle, err := p.load(ctx, key, cfg)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		delete(p.entries, key)
	} else if p.closed {
		delete(p.entries, key)
		_ = handle.engine.Close()
		handle, err = nil, ErrPoolClosed
	}
	pending.handle, pending.err = handle, err
	close(pending.ready)
}

func (p *Pool) load(ctx context.Context, key Key, cfg Config) (*Handle, error) {
	logger := logging.WithContext(ctx, p.logger).With(
		logging.String("kind", string(key.Kind)),
		logging.String("model", key.Model),
		logging.String("device", key.Device),
	)
	spec := LoadSpec{
		Kind:      key.Kind,
		Model:     key.Model,
		Language:  key.Language,
		Device:    key.Device,
		Precision: key.Precision,
		HFToken:   cfg.HFToken,
	}

	start := time.Now()
	engine, err := p.loader.Load(ctx, spec)
	if err == nil {
		precision := loadedPrecision(engine, spec.Precision)
		logger.Info("engine loaded",
			logging.String("precision", precision),
			logging.Duration("elapsed", time.Since(start)),
		)
		return newHandle(key, precision, engine), nil
	}

	fallback := strings.TrimSpace(cfg.FallbackPrecision)
	if fallback == "" || fallback == key.Precision {
		return nil, services.Wrap(services.ErrEngineUnavailable, string(key.Kind), "load engine",
			fmt.Sprintf("Failed to load %s engine %q", key.Kind, key.Model), err)
	}

	logging.WarnWithContext(logger, "preferred precision failed; retrying with fallback", "engine_precision_fallback",
		logging.String("precision", key.Precision),
		logging.String("fallback_precision", fallback),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check GPU support for the configured precision"),
		logging.String(logging.FieldImpact, "engine runs at reduced precision"),
	)
	spec.Precision = fallback
	engine, fallbackErr := p.loader.Load(ctx, spec)
	if fallbackErr != nil {
		return nil, services.Wrap(services.ErrEngineUnavailable, string(key.Kind), "load engine",
			fmt.Sprintf("Failed to load %s engine %q at %s or %s", key.Kind, key.Model, key.Precision, fallback),
			errors.Join(err, fallbackErr))
	}
	precision := loadedPrecision(engine, fallback)
	logger.Info("engine loaded",
		logging.String("precision", precision),
		logging.Duration("elapsed", time.Since(start)),
	)
	return newHandle(key, precision, engine), nil
}

// Info describes a loaded engine.
type Info struct {
	Kind      Kind   `json:"kind"`
	Model     string `json:"model"`
	Language  string `json:"language,omitempty"`
	Device    string `json:"device"`
	Precision string `json:"precision"`
}

// Loaded lists the engines currently held by the pool.
func (p *Pool) Loaded() []Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	infos := make([]Info, 0, len(p.entries))
	for key, e := range p.entries {
		select {
		case <-e.ready:
		default:
			continue
		}
		if e.handle == nil {
			continue
		}
		infos = append(infos, Info{
			Kind:      key.Kind,
			Model:     key.Model,
			Language:  key.Language,
			Device:    key.Device,
			Precision: e.handle.precision,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Kind != infos[j].Kind {
			return infos[i].Kind < infos[j].Kind
		}
		if infos[i].Model != infos[j].Model {
			return infos[i].Model < infos[j].Model
		}
		return infos[i].Language < infos[j].Language
	})
	return infos
}

// Close releases every loaded engine. Loads still in flight are released
// when they finish.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	var handles []*Handle
	for key, e := range p.entries {
		select {
		case <-e.ready:
			if e.handle != nil {
				handles = append(handles, e.handle)
			}
			delete(p.entries, key)
		default:
		}
	}
	p.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if err := h.engine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s engine %q: %w", h.key.Kind, h.key.Model, err))
		}
	}
	return errors.Join(errs...)
}
