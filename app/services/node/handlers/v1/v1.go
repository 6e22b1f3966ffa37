// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/meowchain/meowchain/app/services/node/handlers/v1/public"
	"github.com/meowchain/meowchain/foundation/blockchain/state"
	"github.com/meowchain/meowchain/foundation/events"
	"github.com/meowchain/meowchain/foundation/web"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log   *zap.SugaredLogger
	State *state.State
	Evts  *events.Events
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		Evts:  cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", pbl.Events)
	app.Handle(http.MethodGet, version, "/genesis/list", pbl.Genesis)
	app.Handle(http.MethodGet, version, "/accounts/list", pbl.Accounts)
	app.Handle(http.MethodGet, version, "/accounts/list/:account", pbl.Accounts)
	app.Handle(http.MethodGet, version, "/blocks/latest", pbl.LatestBlock)
	app.Handle(http.MethodGet, version, "/diffs/latest", pbl.LatestDiff)
	app.Handle(http.MethodGet, version, "/metrics/execution", pbl.ExecutionMetrics)
	app.Handle(http.MethodGet, version, "/cache/invalidate/:account", pbl.InvalidateAccount)
	app.Handle(http.MethodPost, version, "/tx/submit", pbl.SubmitTransaction)
}
