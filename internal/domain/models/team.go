// internal/domain/models/team.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Team is a named group of users that tasks are tracked under.
//
// MemberIDs is embedded on the team document; teams are small enough that a
// separate membership collection is not warranted.
type Team struct {
	ID          primitive.ObjectID   `bson:"_id" json:"id"`
	Name        string               `bson:"name" json:"name"`
	NameCI      string               `bson:"name_ci" json:"-"`
	Description string               `bson:"description" json:"description"`
	MemberIDs   []primitive.ObjectID `bson:"member_ids" json:"member_ids"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
