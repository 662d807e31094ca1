package cli

import (
	"context"

	"github.com/valter-silva-au/staffdesk/internal/core"
	"github.com/valter-silva-au/staffdesk/internal/observability"
	"github.com/valter-silva-au/staffdesk/pkg/models"
)

// UserDirectory lists the internal users a note can notify.
type UserDirectory interface {
	InternalUsers(ctx context.Context) ([]models.User, error)
}

// Service instances, set during app initialization in app.go.
var (
	BasePath string
	Config   *models.GlobalConfig
	Logger   *observability.Logger
	// Account is the user the API token was issued to, when it names one.
	Account string

	Records   *core.RecordLoader
	Sources   core.EntitySource
	Resolver  core.ReferenceResolver
	Notes     core.NoteService
	Headers   core.HeaderConfigService
	Layouts   core.LayoutStore
	Users     UserDirectory
	Workflows *core.Workflows
)

// Observability service instances, set during app initialization in app.go.
var (
	EventLog    observability.EventLog
	MetricsCalc observability.MetricsCalculator
)

func logger() *observability.Logger {
	if Logger == nil {
		return observability.NopLogger()
	}
	return Logger
}

func noteActions(t models.EntityType) []string {
	if Config == nil {
		return core.NoteActions(&models.GlobalConfig{}, t)
	}
	return core.NoteActions(Config, t)
}
