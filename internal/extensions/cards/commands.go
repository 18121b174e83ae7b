package cards

import (
	"context"
	"encoding/json"

	"github.com/openarcade/hall/internal/gameerr"
	"github.com/openarcade/hall/internal/ident"
	"github.com/openarcade/hall/internal/server"
	"github.com/openarcade/hall/internal/store"
)

// Commands returns the card engine's command handlers.
func Commands() map[string]server.Handler {
	return map[string]server.Handler{
		"crd_set_deck":   setDeckCommand,
		"crd_deal_cards": dealCardsCommand,
		"crd_draw_cards": drawCardsCommand,
		"crd_discard":    discardCommand,
		"crd_pass_cards": passCardsCommand,
		"crd_cards_left": cardsLeftCommand,
	}
}

// setDeckCommand replaces the default deck with the argument list. Leader
// only, and only before the instance has any other card state.
func setDeckCommand(ctx context.Context, tx store.Tx, target *server.Target, player string, args []interface{}) (interface{}, error) {
	inst, err := target.RequireInstance()
	if err != nil {
		return nil, err
	}
	if _, err := inst.CheckLeader(player); err != nil {
		return nil, err
	}
	return SetDeck(inst, args)
}

// dealCardsCommand deals cards to the listed players. Arguments: the number
// of cards per player, whether to shuffle first, whether hands start fresh,
// whether an empty deck ends the deal quietly, and the recipients. Leader
// only. Returns the caller's hand.
func dealCardsCommand(ctx context.Context, tx store.Tx, target *server.Target, player string, args []interface{}) (interface{}, error) {
	inst, err := target.RequireInstance()
	if err != nil {
		return nil, err
	}
	if _, err := inst.CheckLeader(player); err != nil {
		return nil, err
	}
	count, err := intArg(args, 0)
	if err != nil {
		return nil, err
	}
	shuffleFirst, err := boolArg(args, 1)
	if err != nil {
		return nil, err
	}
	isNewHand, err := boolArg(args, 2)
	if err != nil {
		return nil, err
	}
	ignoreEmptyDeck, err := boolArg(args, 3)
	if err != nil {
		return nil, err
	}
	dealToArg, err := server.ListArg(args, 4)
	if err != nil {
		return nil, err
	}
	dealTo := make([]string, 0, len(dealToArg))
	for _, v := range dealToArg {
		pid, ok := v.(string)
		if !ok {
			return nil, gameerr.New(gameerr.BadArguments,
				"players to deal to must be a list of player ids")
		}
		dealTo = append(dealTo, pid)
	}

	if shuffleFirst {
		if _, err := Shuffle(tx, inst); err != nil {
			return nil, err
		}
	}
	hands, err := Deal(tx, inst, count, isNewHand, ignoreEmptyDeck, dealTo)
	if err != nil {
		return nil, err
	}
	player, err = inst.CheckPlayer(player)
	if err != nil {
		return nil, err
	}
	hand := hands[player]
	if hand == nil {
		hand = []json.RawMessage{}
	}
	return hand, nil
}

// drawCardsCommand draws cards into the caller's hand. Arguments: the
// number of cards and whether an empty deck ends the draw quietly. Returns
// the new hand.
func drawCardsCommand(ctx context.Context, tx store.Tx, target *server.Target, player string, args []interface{}) (interface{}, error) {
	inst, err := target.RequireInstance()
	if err != nil {
		return nil, err
	}
	count, err := intArg(args, 0)
	if err != nil {
		return nil, err
	}
	ignoreEmptyDeck, err := boolArg(args, 1)
	if err != nil {
		return nil, err
	}
	return Draw(tx, inst, player, count, ignoreEmptyDeck, true)
}

// discardCommand discards the argument cards from the caller's hand and
// returns the remaining hand. Cards the caller does not hold are skipped.
func discardCommand(ctx context.Context, tx store.Tx, target *server.Target, player string, args []interface{}) (interface{}, error) {
	inst, err := target.RequireInstance()
	if err != nil {
		return nil, err
	}
	return Discard(tx, inst, player, args, true)
}

// passCardsCommand gives cards from the caller's hand to another player.
// Arguments: the recipient and the list of cards. Returns the caller's
// remaining hand.
func passCardsCommand(ctx context.Context, tx store.Tx, target *server.Target, player string, args []interface{}) (interface{}, error) {
	inst, err := target.RequireInstance()
	if err != nil {
		return nil, err
	}
	toPlayer, err := server.StringArg(args, 0)
	if err != nil {
		return nil, err
	}
	cardList, err := server.ListArg(args, 1)
	if err != nil {
		return nil, err
	}
	return Pass(tx, inst, player, toPlayer, cardList)
}

func cardsLeftCommand(ctx context.Context, tx store.Tx, target *server.Target, player string, args []interface{}) (interface{}, error) {
	inst, err := target.RequireInstance()
	if err != nil {
		return nil, err
	}
	return CardsLeft(inst)
}

func intArg(args []interface{}, i int) (int, error) {
	raw, err := server.ArgAt(args, i)
	if err != nil {
		return 0, err
	}
	return ident.ParseIntValue(raw)
}

func boolArg(args []interface{}, i int) (bool, error) {
	raw, err := server.ArgAt(args, i)
	if err != nil {
		return false, err
	}
	return ident.ParseBooleanValue(raw)
}
