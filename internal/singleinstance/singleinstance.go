// Package singleinstance keeps a second nickutc process from opening the
// same data directory. Both serve and import take the lock, so an import
// never races a running server's writes.
package singleinstance
