//go:build !unix

package watcher

func isFatal(error) bool { return false }
