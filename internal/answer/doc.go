// Package answer generates language model text over stored profiles: a
// biography with suggested questions, short follow-up answers, and a
// multi-turn chat whose history is kept in the profile store.
//
// Nothing here triggers a profile build. Every operation takes a stored
// profile's cache key or identifier and fails with ErrProfileNotFound when
// neither matches.
package answer
