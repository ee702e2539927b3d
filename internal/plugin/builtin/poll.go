// Package builtin holds the server plugins that ship compiled into the
// binary. They go through the same registration and capability scoping as
// disk-loaded units.
package builtin

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"kiama-backend/internal/models"
	"kiama-backend/internal/plugin"
)

// PollPlugin tallies poll messages and votes, exposes the running results
// over a route and advertises the client-side renderer for the poll
// message type.
type PollPlugin struct {
	mutex sync.RWMutex
	polls map[int64]*pollState // poll message id -> state
}

type pollState struct {
	Question string         `json:"question"`
	Options  []string       `json:"options"`
	Votes    map[string]int `json:"votes"` // voter -> option index
}

func NewPollPlugin() *PollPlugin {
	return &PollPlugin{polls: make(map[int64]*pollState)}
}

func (p *PollPlugin) Manifest() plugin.Manifest {
	return plugin.Manifest{
		Name:        "poll",
		Version:     "1.0.0",
		Description: "Interactive polls in chat",
		Permissions: []plugin.Permission{plugin.PermMessageHandler, plugin.PermRouteHandler},
	}
}

func (p *PollPlugin) Init(api *plugin.API) error {
	api.RegisterClientPlugin(plugin.ClientPluginMetadata{
		Name:         "poll-renderer",
		Version:      "1.0.0",
		MessageTypes: []string{"poll"},
		DownloadUrl:  "/cdn/plugins/poll-client.js",
		Checksum:     "4c7e0a0b6f3d1c9a3e5b8d2f7a1c4e6b9d0f2a5c8e1b4d7f0a3c6e9b2d5f8a1c",
		Description:  "Renders interactive polls in chat",
		Author:       "KIAMA Team",
	})

	if registrar, granted := api.MessageHandlers(); granted {
		registrar.AddMessageHandler(p.handleMessage)
	}

	if routes, granted := api.Routes(); granted {
		routes.AddRoute("/plugins/poll/results", p.handleResults)
	}

	api.Log().Info("Poll plugin initialized")
	return nil
}

func (p *PollPlugin) Cleanup() {}

// handleMessage tracks new polls and records poll_vote messages; messages
// of other types pass through untouched.
func (p *PollPlugin) handleMessage(msg models.Message) models.Message {
	switch msg.Type {
	case "poll":
		p.trackPoll(msg)
	case "poll_vote":
		p.recordVote(msg)
	}
	return msg
}

func (p *PollPlugin) trackPoll(msg models.Message) {
	question, _ := msg.Payload["question"].(string)
	rawOptions, _ := msg.Payload["options"].([]any)

	options := make([]string, 0, len(rawOptions))
	for _, raw := range rawOptions {
		if option, ok := raw.(string); ok {
			options = append(options, option)
		}
	}
	if question == "" || len(options) < 2 {
		return
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.polls[msg.ID] = &pollState{
		Question: question,
		Options:  options,
		Votes:    make(map[string]int),
	}
}

func (p *PollPlugin) recordVote(msg models.Message) {
	pollID, ok := msg.Payload["pollID"].(string)
	option, okOption := msg.Payload["option"].(float64)
	if !ok || !okOption {
		return
	}

	// payload carries the poll message id as a decimal string
	id, err := strconv.ParseInt(pollID, 10, 64)
	if err != nil {
		return
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	poll, exists := p.polls[id]
	if !exists || int(option) < 0 || int(option) >= len(poll.Options) {
		return
	}
	poll.Votes[msg.Author] = int(option)
}

func (p *PollPlugin) handleResults(w http.ResponseWriter, r *http.Request) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	type result struct {
		Question string   `json:"question"`
		Options  []string `json:"options"`
		Tally    []int    `json:"tally"`
	}

	results := make(map[string]result, len(p.polls))
	for id, poll := range p.polls {
		tally := make([]int, len(poll.Options))
		for _, option := range poll.Votes {
			tally[option]++
		}
		results[strconv.FormatInt(id, 10)] = result{Question: poll.Question, Options: poll.Options, Tally: tally}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(results); err != nil {
		http.Error(w, "", http.StatusInternalServerError)
	}
}
