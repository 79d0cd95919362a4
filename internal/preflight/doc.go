// Package preflight provides readiness checks for the external services
// and filesystem paths the clip pipeline depends on.
//
// The checks run in two contexts:
//   - The daemon runs them once at startup and logs any failures so a
//     misconfigured install is visible before the first task is claimed.
//   - The CLI "cliply health" command displays the results alongside the
//     workflow manager's stage health.
//
// Checks for optional collaborators are skipped when the corresponding
// endpoint is not configured.
package preflight
