package mypublisher

import (
	"context"

	"github.com/MarcGrol/marketcheckout/lib/myevents"
)

type Publisher interface {
	CreateTopic(c context.Context, topicName string) error
	Publish(c context.Context, topic string, event myevents.Event) error
}
