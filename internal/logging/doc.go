// Package logging provides structured logging for jab.
//
// # Overview
//
// Logging package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Output to stderr, so stdout stays free for dump bytes
//   - Automatic context field injection (operation id, project)
//   - Secret redaction, including passwords inside database URIs
//
// # Usage
//
// Create logger from config:
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
// Log with context:
//
//	ctx = logging.WithOperationID(ctx, uuid.NewString())
//	ctx = logging.WithProject(ctx, "shop")
//	logger.Info(ctx, "dump committed", zap.String("revision", id))
//
// Code below the CLI pulls the logger from the context:
//
//	ctx = logging.WithLogger(ctx, logger)
//	logging.FromContext(ctx).Debug(ctx, "writing dump")
//
// FromContext returns a no-op logger when none was stored, so library code
// never has to nil-check.
//
// # Secret Redaction
//
// Database URIs usually carry credentials. Log them with URI, which keeps
// scheme, host and database but masks the password:
//
//	logger.Info(ctx, "project created", logging.URI("db_uri", uri))
//
// Field names listed in Config.Redaction.Fields are redacted by the encoder
// regardless of how they were logged.
//
// # Testing
//
// Use TestLogger for test assertions:
//
//	tl := logging.NewTestLogger()
//	ctx := logging.WithLogger(ctx, tl.Logger)
//	tl.AssertLogged(t, zapcore.InfoLevel, "dump committed")
//	tl.AssertField(t, "dump committed", "project", "shop")
package logging
