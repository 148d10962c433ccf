package session

// Field names of the session record at sessions/<id>.
const (
	FieldUID             = "uid"
	FieldRoundTitle      = "roundTitle"
	FieldQuestion        = "question"
	FieldQuestionImage   = "questionImage"
	FieldAnswer          = "answer"
	FieldAnswerImage     = "answerImage"
	FieldTimeForQuestion = "timeForQuestion"
	FieldPlayers         = "players"
)

// DefaultTimeForQuestion is the countdown length in seconds when a host does
// not pick one.
const DefaultTimeForQuestion = 30

const sessionsRoot = "sessions"

func SessionPath(sessionID string) string {
	return sessionsRoot + "/" + sessionID
}

func PlayersPath(sessionID string) string {
	return SessionPath(sessionID) + "/" + FieldPlayers
}

func PlayerPath(sessionID, name string) string {
	return PlayersPath(sessionID) + "/" + name
}
