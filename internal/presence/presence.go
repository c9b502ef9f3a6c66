// Package presence tracks which users hold at least one live connection.
//
// A user is online while the table holds any connection id for them. Every
// operation is keyed by the connection id so a late disconnect of an old
// connection never clears a newer one.
package presence

import "context"

type Table interface {
	// MarkOnline records connID for userID. first reports that the user had
	// no other live connection.
	MarkOnline(ctx context.Context, userID, connID string) (first bool, err error)
	// MarkOffline removes connID only. last reports that the user has no
	// remaining connection.
	MarkOffline(ctx context.Context, userID, connID string) (last bool, err error)
	IsOnline(ctx context.Context, userID string) (bool, error)
	// OnlineSubsetOf returns the online users among userIDs in input order.
	OnlineSubsetOf(ctx context.Context, userIDs []string) ([]string, error)
	Close() error
}
