// Package server hosts the Fiber HTTP service that acts as the Remote origin
// for published builds: it serves the build output directory under
// /content/ (GET and HEAD, always with Content-Length so patch probes can
// size bundles) and leaves /-/ paths to the diagnostics routes registered
// by the routes subpackage. Keep exports narrow and accept explicit
// dependencies.
package server
