package services

import (
	"log"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// Notifier pushes encouragement messages to the partner's LINE account.
// Missing configuration turns every push into a no-op.
type Notifier struct {
	bot *messaging_api.MessagingApiAPI
	to  string
}

func NewNotifier(channelToken, partnerID string) *Notifier {
	if channelToken == "" || partnerID == "" {
		log.Println("LINE push is not configured; encouragement messages stay in-app only")
		return &Notifier{}
	}
	bot, err := messaging_api.NewMessagingApiAPI(channelToken)
	if err != nil {
		log.Printf("Failed to create LINE bot client, push disabled: %v", err)
		return &Notifier{}
	}
	return &Notifier{bot: bot, to: partnerID}
}

// PushEncouragement sends one text message, best effort.
func (n *Notifier) PushEncouragement(text string) {
	if n.bot == nil {
		return
	}

	message := &messaging_api.TextMessage{
		Text: text,
	}

	_, err := n.bot.PushMessage(
		&messaging_api.PushMessageRequest{
			To:       n.to,
			Messages: []messaging_api.MessageInterface{message},
		},
		"",
	)
	if err != nil {
		log.Printf("Failed to push encouragement: %v", err)
	}
}
