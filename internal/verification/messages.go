package verification

import (
	"fmt"

	"github.com/hitoshi/verifybot/internal/messaging"
	"github.com/hitoshi/verifybot/internal/model"
	"github.com/hitoshi/verifybot/internal/reconcile"
	"github.com/hitoshi/verifybot/internal/validate"
)

var (
	keepChoice  = messaging.Choice{Emoji: "✅", Label: "keep existing"}
	applyChoice = messaging.Choice{Emoji: "🔄", Label: "apply new"}
)

func startPrompt() messaging.Message {
	return messaging.Message{
		Title:       "🙏 Verification Start",
		Description: "Please enter your data in this format:\n" + validate.Usage + "\nExample:\n" + validate.Example,
		Color:       messaging.ColorGold,
	}
}

func invalidInput(raw string, verr *validate.ValidationError) messaging.Message {
	return messaging.Message{
		Title:       "❌ Invalid Input",
		Description: fmt.Sprintf("Your input was:\n```%s```\n⚠️ %s", raw, verr.Help()),
		Color:       messaging.ColorRed,
	}
}

func conflictPrompt(existing model.Record, incoming model.Profile) messaging.Message {
	return messaging.Message{
		Title: "📌 Data Found",
		Description: fmt.Sprintf("**Current Data in DB:**\n"+
			"No Anggota: %s\nNama: %s\nTgl Lahir: %s\nNickname: %s\n\n"+
			"**Your New Input:**\n"+
			"Nama: %s\nTgl Lahir: %s\nNickname: %s\n\n"+
			"React %s to keep old DB data.\nReact %s to update with your new input.",
			existing.MemberID, existing.FullName, existing.BirthDate, existing.DisplayNickname,
			incoming.FullName, incoming.BirthDate, incoming.DisplayNickname,
			keepChoice.Emoji, applyChoice.Emoji,
		),
		Color: messaging.ColorBlue,
	}
}

func failureMessage(title string, verr *model.VerifyError) messaging.Message {
	return messaging.Message{
		Title:       title,
		Description: verr.Message + " " + verr.Action,
		Color:       messaging.ColorRed,
	}
}

func outcomeMessage(out reconcile.Outcome) messaging.Message {
	switch out.(type) {
	case reconcile.Unchanged:
		return messaging.Message{
			Title:       "⚠️ No Changes",
			Description: "Your new data is identical to old data. No changes made, but you are verified.",
			Color:       messaging.ColorOrange,
		}
	case reconcile.Updated:
		return messaging.Message{
			Title:       "✅ Data Updated",
			Description: "Your data has been updated successfully.",
			Color:       messaging.ColorGreen,
		}
	default:
		return messaging.Message{
			Title:       "🆕 Registered",
			Description: "You have been registered successfully.",
			Color:       messaging.ColorGreen,
		}
	}
}

func welcomeMessage(mention, memberID, roleName string) messaging.Message {
	return messaging.Message{
		Title:       "🎉 Welcome to Oracle!",
		Description: fmt.Sprintf("Welcome %s!\n\nNo Anggota: %s\n\nYou are now part of %s. 🎉", mention, memberID, roleName),
		Color:       messaging.ColorGreen,
	}
}

func alreadyVerified() messaging.Message {
	return messaging.Message{
		Title:       "✅ Already Verified",
		Description: "You are already verified.",
		Color:       messaging.ColorGreen,
	}
}

func alreadyStarted() messaging.Message {
	return messaging.Message{
		Title:       "⚠️ Verification Already Started",
		Description: "You already started verification.\n\n👉 Please check your DM and complete it there.",
		Color:       messaging.ColorOrange,
	}
}

func dmBlockedNotice(mention string) string {
	verr := model.NewDMBlockedError(nil)
	return fmt.Sprintf("%s ⚠️ %s %s", mention, verr.Message, verr.Action)
}

func alreadyVerifiedNotice(mention string) string {
	return mention + " ✅ You are already verified."
}

func alreadyStartedNotice(mention string) string {
	return mention + " ⚠️ You already started verification. Please check your DM to continue."
}
