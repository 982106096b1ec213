package validators

import "go.mongodb.org/mongo-driver/bson"

var JobCartValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"event_id",
			"client_id",
			"service_type",
			"status",
			"created_at",
			"updated_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 64,
			},

			"event_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 64,
			},

			"client_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 128,
			},

			"service_type": bson.M{
				"bsonType":  "string",
				"minLength": 2,
				"maxLength": 100,
			},

			"location": bson.M{
				"bsonType":  "string",
				"maxLength": 200,
			},

			"description": bson.M{
				"bsonType":  "string",
				"maxLength": 2000,
			},

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"available",
					"in_progress",
					"completed",
					"cancelled",
				},
			},

			"accepted_by": bson.M{
				"bsonType": "string",
			},

			"created_at": bson.M{
				"bsonType": "date",
			},

			"updated_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}

var JobCartClaimValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"job_cart_id",
			"provider_id",
			"status",
			"decided_at",
		},
		"additionalProperties": false,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "string",
			},

			"job_cart_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 64,
			},

			"provider_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 128,
			},

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"accepted",
					"declined",
				},
			},

			"decided_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
