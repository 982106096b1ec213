package model

// User is the display profile of an actor, kept only so that holder ids can
// be shown with a name.
type User struct {
	ID          string `json:"id" bson:"_id"`
	DisplayName string `json:"display_name" bson:"display_name"`
	Role        string `json:"role,omitempty" bson:"role"`
}
