package command

import "github.com/signupwatch/daemon/internal/domain"

// Route parses text as a chat command and hands the resulting event to
// submit. A parse error is reported directly back to the sender rather
// than ever reaching the dispatcher, since there's no event to submit.
func Route(text string, reply domain.ReplyFunc, submit func(domain.Event)) {
	ev, err := Parse(text, reply)
	if err != nil {
		reply(err.Error())
		return
	}
	submit(ev)
}
