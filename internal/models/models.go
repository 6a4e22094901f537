package models

// All lists every relational model in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Category{},
		&CategoryQuestion{},
		&Entity{},
		&Review{},
		&Comment{},
		&Reaction{},
		&ReviewView{},
		&EntityView{},
		&Conversation{},
		&Participant{},
		&Message{},
		&MessageReaction{},
		&MessageAttachment{},
		&Notification{},
		&Follow{},
		&CircleRequest{},
	}
}
