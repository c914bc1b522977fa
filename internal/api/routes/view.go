package routes

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"companion-api/internal/api/middleware"
	"companion-api/pkg/ratelimit"

	"github.com/gin-gonic/gin"
)

// ErrDuplicateView is returned when two views with the same name are added
var ErrDuplicateView = errors.New("view already added")

// Route is one endpoint of a View, built with GET, POST, Handle or WebSocket
type Route struct {
	path       string
	methods    []string
	handler    gin.HandlerFunc
	middleware []gin.HandlerFunc
	policy     *ratelimit.Policy
	prefix     bool
	websocket  bool
}

// Handle creates a route answering the given methods
func Handle(methods []string, path string, h gin.HandlerFunc) *Route {
	return &Route{path: path, methods: methods, handler: h, prefix: true}
}

// GET creates a GET route
func GET(path string, h gin.HandlerFunc) *Route {
	return Handle([]string{http.MethodGet}, path, h)
}

// POST creates a POST route
func POST(path string, h gin.HandlerFunc) *Route {
	return Handle([]string{http.MethodPost}, path, h)
}

// DELETE creates a DELETE route
func DELETE(path string, h gin.HandlerFunc) *Route {
	return Handle([]string{http.MethodDelete}, path, h)
}

// WebSocket creates an upgrade route; limits apply to the upgrade request only
func WebSocket(path string, h gin.HandlerFunc) *Route {
	r := GET(path, h)
	r.websocket = true
	return r
}

// Limit attaches a rate limit policy. nil leaves the route unlimited.
func (r *Route) Limit(p *ratelimit.Policy) *Route {
	r.policy = p
	return r
}

// Use adds middleware that runs after the rate limit and before the handler
func (r *Route) Use(mw ...gin.HandlerFunc) *Route {
	r.middleware = append(r.middleware, mw...)
	return r
}

// NoPrefix keeps the path out of the view's "/<name>" prefix
func (r *Route) NoPrefix() *Route {
	r.prefix = false
	return r
}

// Policy returns the attached policy, if any
func (r *Route) Policy() *ratelimit.Policy { return r.policy }

// IsWebSocket reports whether the route upgrades the connection
func (r *Route) IsWebSocket() bool { return r.websocket }

// Methods returns the HTTP methods served
func (r *Route) Methods() []string { return r.methods }

// View groups routes under a lower-case name that doubles as their path prefix
type View struct {
	name   string
	routes []*Route
}

// NewView creates a view
func NewView(name string, routes ...*Route) *View {
	return &View{name: strings.ToLower(name), routes: routes}
}

// Name returns the lower-case view name
func (v *View) Name() string { return v.name }

// Routes returns the routes in registration order
func (v *View) Routes() []*Route { return v.routes }

// Path returns the view-relative path of r, prefixed with the view name
// unless the route opted out.
func (v *View) Path(r *Route) string {
	if !r.prefix {
		return r.path
	}
	rest := strings.Trim(r.path, "/")
	if rest == "" {
		return "/" + v.name
	}
	return "/" + v.name + "/" + rest
}

// Application mounts views on a gin engine behind a shared Gate
type Application struct {
	engine *gin.Engine
	gate   *middleware.Gate
	prefix string
	views  []*View
}

// NewApplication creates an application; prefix is prepended to every view route
func NewApplication(engine *gin.Engine, gate *middleware.Gate, prefix string) *Application {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix = "/" + prefix
	}
	return &Application{engine: engine, gate: gate, prefix: prefix}
}

// Prefix returns the normalised application prefix
func (a *Application) Prefix() string { return a.prefix }

// Views returns the added views
func (a *Application) Views() []*View { return a.views }

// AddView registers every route of v
func (a *Application) AddView(v *View) error {
	for _, existing := range a.views {
		if existing.name == v.name {
			return fmt.Errorf("%w: %q", ErrDuplicateView, v.name)
		}
	}

	for _, r := range v.routes {
		path := a.prefix + v.Path(r)

		handlers := make([]gin.HandlerFunc, 0, len(r.middleware)+2)
		handlers = append(handlers, a.gate.Limit(r.policy))
		handlers = append(handlers, r.middleware...)
		handlers = append(handlers, r.handler)

		for _, method := range r.methods {
			a.engine.Handle(method, path, handlers...)
		}
	}

	a.views = append(a.views, v)
	return nil
}
