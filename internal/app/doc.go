// Package app wires a connector from its YAML descriptor: checkpoint store,
// sink, dispatcher, error policy and the HTTP surface hosting the local
// ingest path, then runs it until the context ends.
//
// Example:
//
//	cfg, _ := config.Load("connector.yaml")
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//	_ = app.Run(ctx, cfg, l)
package app
