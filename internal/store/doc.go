// Package store holds the entities served by GraphQL queries and written by
// data sources.
//
// Entities are attribute bags addressed by a Key (entity type and id). Data
// sources never write directly: they emit Events which Apply validates against
// the schema and turns into backend writes. Applies are serialized, and each
// successful apply publishes a Change to every Listener interested in the
// entity type, in apply order.
//
// Reads (Get and Find) go straight to the Backend and may run concurrently
// with applies. Backends copy entities in and out, so a reader never observes
// a half-applied entity.
package store
