package adapter

import (
	"testing"

	"replicon"
	"replicon/entitychannel"
	"replicon/subchannel"
)

func TestTranslateEmittedSpawnAndDespawn(t *testing.T) {
	spawn := entitychannel.Emitted{Global: 1, Cmd: subchannel.Command{Kind: subchannel.CmdSpawn}}
	evt, ok := TranslateEmitted(spawn)
	if !ok || evt.Kind != EvtSpawnEntity || evt.Global != 1 {
		t.Fatalf("unexpected translation: %+v, ok=%v", evt, ok)
	}

	despawn := entitychannel.Emitted{Global: 1, Cmd: subchannel.Command{Kind: subchannel.CmdDespawn}}
	evt, ok = TranslateEmitted(despawn)
	if !ok || evt.Kind != EvtDespawnEntity {
		t.Fatalf("unexpected translation: %+v, ok=%v", evt, ok)
	}
}

func TestTranslateEmittedMigrateResponseCarriesNewHost(t *testing.T) {
	e := entitychannel.Emitted{
		Global: 2,
		Cmd: subchannel.Command{
			Kind:    subchannel.CmdMigrateResponse,
			Payload: entitychannel.MigrateResponsePayload{Old: 10, New: 20},
		},
	}
	evt, ok := TranslateEmitted(e)
	if !ok || evt.Kind != EvtEntityMigrateResponse || evt.NewHost != replicon.RemoteEntity(20) {
		t.Fatalf("unexpected translation: %+v, ok=%v", evt, ok)
	}
}

func TestTranslateEmittedBatchFiltersUnknown(t *testing.T) {
	batch := []entitychannel.Emitted{
		{Global: 1, Cmd: subchannel.Command{Kind: subchannel.CmdSpawn}},
		{Global: 1, Cmd: subchannel.Command{Kind: subchannel.CommandKind(255)}},
	}
	out := TranslateEmittedBatch(batch)
	if len(out) != 1 {
		t.Fatalf("expected 1 translated event, got %d", len(out))
	}
}
