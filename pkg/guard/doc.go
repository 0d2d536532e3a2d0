// Package guard is the broker application's authentication facade over the
// SSO client: lazy user resolution, credential attempts and logout, with
// lifecycle events for application hooks.
//
// A Guard caches its resolved user, so construct one per request scope.
package guard
