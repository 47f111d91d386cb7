// Package entities declares the record types the service exposes.
package entities

import "entity-store/core"

var (
	Characters = core.Schema{
		Name:               "ben",
		Collection:         "ben10",
		Singular:           "character",
		Plural:             "characters",
		Required:           []string{"characterName", "characterDescription"},
		AttachmentField:    "imageUrl",
		AttachmentRequired: true,
		// Older clients post the file as "image".
		UploadFields: []string{"imageUrl", "image"},
	}

	Superheroes = core.Schema{
		Name:       "superheroes",
		Collection: "superheroes",
		Singular:   "superhero",
		Plural:     "superheroes",
		Required:   []string{"superheroName", "originalName"},
		Optional:   []string{"abilities", "weakness", "backstory", "reason", "contributor", "comment"},
	}

	Images = core.Schema{
		Name:               "images",
		Collection:         "images",
		Singular:           "image",
		Plural:             "images",
		Required:           []string{"name"},
		AttachmentField:    "image",
		AttachmentRequired: true,
		NameFromFile:       "name",
	}
)

func All() []core.Schema {
	return []core.Schema{Characters, Superheroes, Images}
}
