package docquery

import (
	"github.com/kart-io/docquery/pkg/app"
)

const (
	appName        = "docquery"
	appDescription = `Document Query Service

A retrieval-augmented question answering service over your own documents.

This server provides:
  - Document ingestion with text chunking and vector embeddings
  - Semantic similarity search over a persistent local index
  - Question answering grounded in the retrieved document contexts`
)

// NewApp creates a new application instance.
func NewApp() *app.App {
	opts := NewOptions()

	return app.NewApp(
		app.WithName(appName),
		app.WithDescription(appDescription),
		app.WithOptions(opts),
		app.WithRunFunc(func() error {
			return Run(opts)
		}),
	)
}

// Run runs the document query service with the given options.
func Run(opts *Options) error {
	srv, err := NewServer(opts)
	if err != nil {
		return err
	}
	return srv.Run()
}
