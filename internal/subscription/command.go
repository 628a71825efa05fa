// Package subscription handles the email commands that manage digest
// subscribers. Deciding what a command does is a pure function; Service
// applies the result to the store.
package subscription

import (
	"fmt"
	"slices"
	"strings"

	"github.com/kiranshivaraju/errdigest/pkg/models"
)

const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// Command is a parsed "action:client_id" subject line.
type Command struct {
	Action   string
	ClientID string
}

// ParseSubject splits a subject on its first colon. The action is lowercased;
// a missing or blank client id yields an empty ClientID.
func ParseSubject(subject string) Command {
	action, clientID, _ := strings.Cut(subject, ":")
	return Command{
		Action:   strings.ToLower(strings.TrimSpace(action)),
		ClientID: strings.TrimSpace(clientID),
	}
}

// Mutation is the state change a Decision asks for.
type Mutation int

const (
	MutationNone Mutation = iota
	MutationAdd
	MutationRemove
)

// Decision is the outcome of a command: what to log, what to reply and how
// to change the subscription.
type Decision struct {
	LogMessage   string
	ReplySubject string
	ReplyBody    string
	Mutation     Mutation
}

const usage = "set subject as 'subscribe:<client_id>' where client_id is the app string id sent along side the errors you want to subscribe to\n" +
	"set subject as 'unsubscribe:<client_id>' to unsubscribe from the app specified"

// Decide computes the effect of cmd issued by sender. current is the existing
// subscription for cmd.ClientID, or nil if there is none; a new one is only
// created for client ids in allowed.
func Decide(cmd Command, sender string, current *models.Subscription, allowed []string) Decision {
	if cmd.ClientID == "" {
		const msg = "message subject need to specify client_id"
		return Decision{
			LogMessage:   msg + " " + sender,
			ReplySubject: msg,
			ReplyBody:    msg + "\n" + usage,
		}
	}

	if current == nil && !slices.Contains(allowed, cmd.ClientID) {
		msg := fmt.Sprintf("clientId : '%s' is not allowed", cmd.ClientID)
		return Decision{LogMessage: msg, ReplySubject: msg, ReplyBody: msg}
	}
	subscribed := current != nil && current.Has(sender)

	switch cmd.Action {
	case ActionSubscribe:
		if subscribed {
			subject := fmt.Sprintf("You are already in the subscribe list of %s", cmd.ClientID)
			return Decision{
				LogMessage:   "already in the subscribed list: " + sender,
				ReplySubject: subject,
				ReplyBody:    subject,
			}
		}
		return Decision{
			LogMessage:   fmt.Sprintf("adding %s to the subscribed list of %s", sender, cmd.ClientID),
			ReplySubject: fmt.Sprintf("You have been added to the subscribed list of %s", cmd.ClientID),
			ReplyBody: fmt.Sprintf("You have been added to the subscribed list of %s, to unsubscribe, just send a message with subject: 'unsubscribe:%s'",
				cmd.ClientID, cmd.ClientID),
			Mutation: MutationAdd,
		}

	case ActionUnsubscribe:
		if !subscribed {
			subject := fmt.Sprintf("You are not in the subscribe list of %s", cmd.ClientID)
			return Decision{
				LogMessage:   "not on the subscribed list: " + sender,
				ReplySubject: subject,
				ReplyBody:    subject,
			}
		}
		return Decision{
			LogMessage:   "removing from the subscribed list: " + sender,
			ReplySubject: fmt.Sprintf("You have been unsubscribed from %s", cmd.ClientID),
			ReplyBody: fmt.Sprintf("You have been unsubscribed from %s, to subscribe again, just send a message with subject: 'subscribe:%s'",
				cmd.ClientID, cmd.ClientID),
			Mutation: MutationRemove,
		}
	}

	const msg = "message subject not recognized"
	return Decision{
		LogMessage:   msg + " " + sender,
		ReplySubject: msg,
		ReplyBody:    msg + "\n" + usage,
	}
}
