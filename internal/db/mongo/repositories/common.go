// Package repositories contains MongoDB repository implementations.
package repositories

import "go.mongodb.org/mongo-driver/v2/bson"

// cmdSet - See https://www.mongodb.com/docs/manual/reference/operator/update/set/
func cmdSet(i any) bson.E {
	return bson.E{
		Key:   "$set",
		Value: i,
	}
}

// cmdSetOnInsert - See https://www.mongodb.com/docs/manual/reference/operator/update/setOnInsert/
func cmdSetOnInsert(i any) bson.E {
	return bson.E{
		Key:   "$setOnInsert",
		Value: i,
	}
}
