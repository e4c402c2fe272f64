package sound

// Player starts a clip.
type Player interface {
	Play(path string) error
}

// Jukebox couples a Library to a Player.
type Jukebox struct {
	lib    *Library
	player Player
}

func NewJukebox(lib *Library, player Player) *Jukebox {
	return &Jukebox{lib: lib, player: player}
}

// PlayFor plays the clip matching text. It reports false when nothing
// matched.
func (j *Jukebox) PlayFor(text string) (bool, error) {
	path, ok, err := j.lib.Lookup(text)
	if err != nil || !ok {
		return false, err
	}
	if err := j.player.Play(path); err != nil {
		return false, err
	}
	return true, nil
}
