package engine

// PartyID is a dense integer identifier for a Party.
type PartyID int

// Party is a group of players queueing together. The engine models parties
// as a data concept only, with no interactive party-formation surface:
// parties are assigned at population generation and never split across
// teams.
type Party struct {
	ID      PartyID
	Members []PlayerID
	LeaderID PlayerID
}

// Size returns the party's member count.
func (p *Party) Size() int {
	return len(p.Members)
}
