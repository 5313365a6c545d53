package action

import (
	"github.com/Konsultn-Engineering/stormweaver/metadata"
	"github.com/Konsultn-Engineering/stormweaver/random"
)

// FindRandomTable returns a random catalog entry. It retries a few times
// because a concurrent DROP can briefly leave the drawn slot empty.
func FindRandomTable(cat *metadata.Metadata, rnd *random.Random) (*metadata.Table, error) {
	if cat.Size() == 0 {
		return nil, NewError("empty-metadata", "can't find random table: metadata is empty")
	}

	for i := 0; i < 10; i++ {
		idx := rnd.IntN(cat.Size())
		if t := cat.Get(idx); t != nil {
			return t, nil
		}
	}

	return nil, NewError("empty-metadata", "can't find random table: no result in 10 tries")
}
