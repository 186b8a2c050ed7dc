// Package store defines interfaces for persistence dependencies such as the
// job history repository. Implementations live in other packages; this
// package must not import database drivers or concrete clients.
package store
