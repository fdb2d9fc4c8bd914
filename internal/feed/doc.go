// Package feed periodically pulls a notification from a Source and adds it
// to the store, waiting a random delay between firings.
package feed
