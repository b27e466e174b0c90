// internal/app/admission/messages.go
package admission

import "fmt"

// Outbound message texts. Kept in one place so wording changes never touch
// the state machine.

const msgNeedAdminRights = "I need admin rights with \"Restrict members\" " +
	"permission to manage new member verification in this group."

const msgAccepted = "Thank you! You are verified and can now post in the group. Welcome!"

const msgDeclined = "You declined the group declaration, so your registration was removed. " +
	"If you change your mind, leave and rejoin the group to start over."

func msgDeclaration(declaration string) string {
	return fmt.Sprintf("Before you can post in the group, please read and respond "+
		"to the group declaration:\n\n%s", declaration)
}

func msgJoinAnnouncement(username string) string {
	return fmt.Sprintf("Welcome, %s! Please complete verification before posting. "+
		"Tap the button below to receive the group declaration in a private chat.", username)
}

func msgWelcomeBack(username string) string {
	return fmt.Sprintf("Welcome back, %s! You are already verified.", username)
}

func msgVerifiedAnnouncement(username string) string {
	if username == "" {
		return "A new member completed verification. Welcome!"
	}
	return fmt.Sprintf("%s completed verification. Welcome!", username)
}

func msgGroupBound(groupName string) string {
	return fmt.Sprintf("This group (%s) is now the managed group for this bot.", groupName)
}
