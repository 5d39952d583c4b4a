// Package mongo provides a MongoDB-backed store for experiment records.
//
// The canonical key is the document _id, so insert-if-absent rides on the
// collection's built-in unique index and compare-and-swap is a conditioned
// UpdateOne. Map keys in configs and results are sanitized ("." to ",",
// "$" to "&") because MongoDB reserves those characters in field names.
//
//	client, _ := mongod.Connect(options.Client().ApplyURI(uri))
//	s := mongo.New(client.Database("experiments"))
//	_ = s.Migrate(ctx)
package mongo
