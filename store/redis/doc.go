// Package redis provides a Redis-backed store for experiment records using
// go-redis v9.
//
// Each record is one JSON value. Insert-if-absent is SET NX; the
// compare-and-swap and the Booked-to-Solved transition run inside
// optimistic WATCH/MULTI/EXEC transactions, so any concurrent writer
// aborts the transaction and the protocol sees a claim conflict.
//
//	s := redis.New(goredis.NewClient(&goredis.Options{Addr: addr}))
package redis
