/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package exchange draws gift exchange assignments.
//
// A Roster holds the participants of one exchange along with the names each
// of them refuses to give to. Assign turns a roster into a full giving
// mapping: nobody gives to themselves, everybody gives and receives exactly
// once, exclusions are honored and no two participants give to each other.
//
// The engine keeps no state between calls and never mutates the roster it is
// given. Each pass shuffles the candidate recipients for every giver and
// restarts from scratch when a giver runs out of candidates. Passes are
// bounded (see WithMaxAttempts); once the budget is spent an exact
// backtracking search decides the roster (see WithFallback).
package exchange
