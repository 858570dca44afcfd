package contact

import (
	"fmt"
	"io"

	"github.com/emersion/go-vcard"
)

// WriteVCards encodes contacts as vCard 4.0 cards, one after another.
func WriteVCards(w io.Writer, contacts []Contact) error {
	enc := vcard.NewEncoder(w)
	for _, c := range contacts {
		card := make(vcard.Card)
		card.SetValue(vcard.FieldFormattedName, c.Name)
		if c.ID != "" {
			card.SetValue(vcard.FieldUID, string(c.ID))
		}
		if c.Phone != "" {
			card.AddValue(vcard.FieldTelephone, c.Phone)
		}
		if c.Email != "" {
			card.AddValue(vcard.FieldEmail, c.Email)
		}
		vcard.ToV4(card)
		if err := enc.Encode(card); err != nil {
			return fmt.Errorf("encode vcard %q: %w", c.Name, err)
		}
	}
	return nil
}
