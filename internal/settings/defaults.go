package settings

// Defaults are the process-wide values used when a chat has no override.
var Defaults = map[Name]Value{
	WelcomeWords: {Kind: KindStringList, Strings: []string{
		"New member, please answer the following question within %time% seconds",
	}},
	ChallengeQs: {Kind: KindQuestions, Questions: []Question{
		{"What color is the sky on a clear day?", "blue", []string{"red", "green", "black", "purple", "yellow"}},
		{"How many days are in a week?", "7", []string{"5", "8", "10", "6", "3"}},
		{"Which season comes after spring?", "summer", []string{"autumn", "winter", "april", "may", "september"}},
		{"What is 2+2?", "4", []string{"3", "5", "22", "1", "6"}},
		{"Why did you join this group?", "to learn and chat", []string{"advertising", "spam", "to wreck the group"}},
	}},
	ChallengeSuccess: {Kind: KindStringList, Strings: []string{
		"Verification passed.",
	}},
	PermissionDeny: {Kind: KindStringList, Strings: []string{
		"You don't need to verify",
		"This button is not for you!",
		"Wrong button! Want a restriction?",
	}},
	ChallengeTimeout: {Kind: KindInt, Int: 5 * 60},
	MinChallengeTime: {Kind: KindInt, Int: 15},
	UnbanTimeout:     {Kind: KindInt, Int: 5 * 60},
	FloodLimit:       {Kind: KindInt, Int: 5},
	DelLeaveMsg:      {Kind: KindBool, Bool: true},
	DelServiceMsg:    {Kind: KindBool, Bool: true},
}

// HelpEntry describes an option in the settings menu.
type HelpEntry struct {
	Title       string
	Description string
}

// Help describes every recognized option. Its key set matches Defaults.
var Help = map[Name]HelpEntry{
	WelcomeWords: {"Welcome text",
		"Welcome message; %time% stands for the verification time in seconds. Enter one variant per line."},
	ChallengeQs: {"Challenge questions",
		"Add a challenge question in the format:\nQuestion\nCorrect answer\nWrong answer\n(one or more wrong answers)"},
	ChallengeSuccess: {"Success message",
		"Popup shown after a passed verification. Enter one variant per line."},
	PermissionDeny: {"Not-for-you message",
		"Popup shown when someone presses a button that is not theirs. Enter one variant per line."},
	ChallengeTimeout: {"Challenge timeout",
		"Verification timeout in seconds, from 1 to 3600."},
	MinChallengeTime: {"Minimum dynamic challenge time",
		"Lower bound of the dynamic verification time in seconds, from 0 to the challenge timeout."},
	UnbanTimeout: {"Unban timeout",
		"Seconds until a failed or timed out participant is unbanned. 0 or more than 86400 bans permanently."},
	FloodLimit: {"Flood protection",
		"Pending participants at which joins are bundled into one shared challenge. 0 disables, 1 always bundles."},
	DelLeaveMsg: {"Delete leave messages",
		"Delete messages about members leaving or being removed."},
	DelServiceMsg: {"Delete service messages",
		"Delete all other service messages (title, photo, pinned message changes)."},
}
