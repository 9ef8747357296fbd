// Package proxy manages the edge proxy's domain routing table. Routes are
// kept in a JSON file the proxy reads on reload, so a crashed control plane
// never leaves the proxy pointing at state it cannot reconstruct.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rudder-cd/rudder/domain"
)

// Route maps one public domain to a slot target
type Route struct {
	Domain      string    `json:"domain"`
	Target      string    `json:"target"`
	Project     string    `json:"project"`
	Environment string    `json:"environment"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Router is the interface for reading and updating the proxy routing table
type Router interface {
	SetRoute(ctx context.Context, route Route) error
	RemoveRoute(ctx context.Context, domainName string) error
	Route(ctx context.Context, domainName string) (*Route, error)
	Routes(ctx context.Context) ([]Route, error)
}

type routeTable struct {
	Routes map[string]Route `json:"routes"`
}

// FileRouter persists routes to a JSON file and pokes the proxy after every
// change. Writes go through a temp file and rename, so the proxy never reads
// a half-written table.
type FileRouter struct {
	mu       sync.Mutex
	path     string
	reloader Reloader
}

func NewFileRouter(path string, reloader Reloader) *FileRouter {
	return &FileRouter{
		path:     path,
		reloader: reloader,
	}
}

func (r *FileRouter) SetRoute(ctx context.Context, route Route) error {
	if route.Domain == "" {
		return domain.NewValidationError("route domain cannot be empty")
	}
	if route.Target == "" {
		return domain.NewValidationError("route target cannot be empty")
	}
	if route.UpdatedAt.IsZero() {
		route.UpdatedAt = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	table, err := r.load()
	if err != nil {
		return err
	}
	table.Routes[route.Domain] = route
	if err := r.save(table); err != nil {
		return err
	}
	return r.reloader.Reload(ctx)
}

// RemoveRoute drops a domain from the table. Removing an absent domain is a
// no-op, so repair runs can call it unconditionally.
func (r *FileRouter) RemoveRoute(ctx context.Context, domainName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	table, err := r.load()
	if err != nil {
		return err
	}
	if _, ok := table.Routes[domainName]; !ok {
		return nil
	}
	delete(table.Routes, domainName)
	if err := r.save(table); err != nil {
		return err
	}
	return r.reloader.Reload(ctx)
}

func (r *FileRouter) Route(_ context.Context, domainName string) (*Route, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	table, err := r.load()
	if err != nil {
		return nil, err
	}
	route, ok := table.Routes[domainName]
	if !ok {
		return nil, fmt.Errorf("route for %s: %w", domainName, domain.ErrNotFound)
	}
	return &route, nil
}

func (r *FileRouter) Routes(_ context.Context) ([]Route, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	table, err := r.load()
	if err != nil {
		return nil, err
	}
	routes := make([]Route, 0, len(table.Routes))
	for _, route := range table.Routes {
		routes = append(routes, route)
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].Domain < routes[j].Domain })
	return routes, nil
}

// load reads the table from disk. A missing file is an empty table.
func (r *FileRouter) load() (*routeTable, error) {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return &routeTable{Routes: make(map[string]Route)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read route table: %w", err)
	}

	var table routeTable
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse route table: %w", err)
	}
	if table.Routes == nil {
		table.Routes = make(map[string]Route)
	}
	return &table, nil
}

// save writes the table atomically: temp file, sync, rename
func (r *FileRouter) save(table *routeTable) error {
	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal route table: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create route table directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, ".routes-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp route table: %w", err)
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return fmt.Errorf("failed to write route table: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return fmt.Errorf("failed to sync route table: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close route table: %w", err)
	}
	if err := os.Rename(tempPath, r.path); err != nil {
		return fmt.Errorf("failed to replace route table: %w", err)
	}

	success = true
	return nil
}

// MemoryRouter keeps routes in memory. Used by tests and dry runs.
type MemoryRouter struct {
	mu     sync.Mutex
	routes map[string]Route
}

func NewMemoryRouter() *MemoryRouter {
	return &MemoryRouter{routes: make(map[string]Route)}
}

func (r *MemoryRouter) SetRoute(_ context.Context, route Route) error {
	if route.Domain == "" {
		return domain.NewValidationError("route domain cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if route.UpdatedAt.IsZero() {
		route.UpdatedAt = time.Now()
	}
	r.routes[route.Domain] = route
	return nil
}

func (r *MemoryRouter) RemoveRoute(_ context.Context, domainName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.routes, domainName)
	return nil
}

func (r *MemoryRouter) Route(_ context.Context, domainName string) (*Route, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	route, ok := r.routes[domainName]
	if !ok {
		return nil, fmt.Errorf("route for %s: %w", domainName, domain.ErrNotFound)
	}
	return &route, nil
}

func (r *MemoryRouter) Routes(_ context.Context) ([]Route, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	routes := make([]Route, 0, len(r.routes))
	for _, route := range r.routes {
		routes = append(routes, route)
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].Domain < routes[j].Domain })
	return routes, nil
}
