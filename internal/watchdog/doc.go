// Package watchdog keeps monitored roles alive.
//
// Every interval it checks each configured role with its probes and, when a
// role is not running, invokes the role's starter, waits a grace period and
// checks again. Roles are handled one after another, each bounded by its own
// timeout so a hung probe cannot starve the others.
package watchdog
