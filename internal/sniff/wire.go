package sniff

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/sorayoru/reliquary/internal/model"
)

// Command ids carrying the payloads the aggregator consumes. Every other
// id is decoded but never classified.
const (
	CmdPlayerStoreNotify        uint16 = 690
	CmdAvatarDataNotify         uint16 = 1716
	CmdAchievementAllDataNotify uint16 = 2678
)

// MatchItems reports whether cmd carries an item batch and decodes it.
// Malformed payloads are treated as a non-match.
func MatchItems(cmd model.Command) ([]model.ItemRecord, bool) {
	if cmd.ID != CmdPlayerStoreNotify {
		return nil, false
	}
	items, err := decodeItemList(cmd.Data)
	if err != nil {
		return nil, false
	}
	return items, true
}

// MatchCharacters reports whether cmd carries a character batch and
// decodes it.
func MatchCharacters(cmd model.Command) ([]model.CharacterRecord, bool) {
	if cmd.ID != CmdAvatarDataNotify {
		return nil, false
	}
	avatars, err := decodeAvatarList(cmd.Data)
	if err != nil {
		return nil, false
	}
	return avatars, true
}

// MatchAchievements reports whether cmd carries an achievement batch and
// decodes it.
func MatchAchievements(cmd model.Command) ([]model.Achievement, bool) {
	if cmd.ID != CmdAchievementAllDataNotify {
		return nil, false
	}
	achievements, err := decodeAchievementList(cmd.Data)
	if err != nil {
		return nil, false
	}
	return achievements, true
}

// The payload bodies are protobuf wire format. Only the handful of fields
// the pipeline needs are walked, with protowire; unknown fields are
// skipped the way protobuf requires.

func decodeItemList(b []byte) ([]model.ItemRecord, error) {
	items := []model.ItemRecord{}
	err := eachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num == 1 && typ == protowire.BytesType {
			item, err := decodeItem(v)
			if err != nil {
				return err
			}
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func decodeItem(b []byte) (model.ItemRecord, error) {
	var item model.ItemRecord
	err := eachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch {
		case num == 1 && typ == protowire.VarintType:
			item.ItemID = uint32(varint(v))
		case num == 2 && typ == protowire.VarintType:
			item.GUID = varint(v)
		case num == 5 && typ == protowire.BytesType:
			equip, err := decodeEquip(v)
			if err != nil {
				return err
			}
			item.Equip = &equip
		case num == 6 && typ == protowire.BytesType:
			material, err := decodeMaterial(v)
			if err != nil {
				return err
			}
			item.Material = &material
		}
		return nil
	})
	return item, err
}

func decodeEquip(b []byte) (model.EquipData, error) {
	var equip model.EquipData
	err := eachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch {
		case num == 1 && typ == protowire.BytesType:
			reliquary, err := decodeReliquary(v)
			if err != nil {
				return err
			}
			equip.Reliquary = &reliquary
		case num == 2 && typ == protowire.BytesType:
			weapon, err := decodeWeapon(v)
			if err != nil {
				return err
			}
			equip.Weapon = &weapon
		case num == 3 && typ == protowire.VarintType:
			equip.Locked = varint(v) != 0
		}
		return nil
	})
	return equip, err
}

func decodeReliquary(b []byte) (model.Reliquary, error) {
	var r model.Reliquary
	err := eachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch {
		case num == 1 && typ == protowire.VarintType:
			r.Level = uint32(varint(v))
		case num == 2 && typ == protowire.VarintType:
			r.MainPropID = uint32(varint(v))
		case num == 3 && typ == protowire.VarintType:
			r.AppendPropIDs = append(r.AppendPropIDs, uint32(varint(v)))
		case num == 3 && typ == protowire.BytesType:
			// Packed encoding of the substat list.
			for len(v) > 0 {
				id, n := protowire.ConsumeVarint(v)
				if n < 0 {
					return protowire.ParseError(n)
				}
				r.AppendPropIDs = append(r.AppendPropIDs, uint32(id))
				v = v[n:]
			}
		}
		return nil
	})
	return r, err
}

func decodeWeapon(b []byte) (model.Weapon, error) {
	var w model.Weapon
	err := eachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch {
		case num == 1 && typ == protowire.VarintType:
			w.Level = uint32(varint(v))
		case num == 2 && typ == protowire.VarintType:
			w.PromoteLevel = uint32(varint(v))
		case num == 3 && typ == protowire.BytesType:
			key, value, err := decodeUint32MapEntry(v)
			if err != nil {
				return err
			}
			if w.AffixMap == nil {
				w.AffixMap = make(map[uint32]uint32)
			}
			w.AffixMap[key] = value
		}
		return nil
	})
	return w, err
}

func decodeMaterial(b []byte) (model.MaterialData, error) {
	var m model.MaterialData
	err := eachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num == 1 && typ == protowire.VarintType {
			m.Count = uint32(varint(v))
		}
		return nil
	})
	return m, err
}

func decodeAvatarList(b []byte) ([]model.CharacterRecord, error) {
	avatars := []model.CharacterRecord{}
	err := eachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num == 1 && typ == protowire.BytesType {
			avatar, err := decodeAvatar(v)
			if err != nil {
				return err
			}
			avatars = append(avatars, avatar)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return avatars, nil
}

func decodeAvatar(b []byte) (model.CharacterRecord, error) {
	var avatar model.CharacterRecord
	err := eachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch {
		case num == 1 && typ == protowire.VarintType:
			avatar.AvatarID = uint32(varint(v))
		case num == 2 && typ == protowire.VarintType:
			avatar.AvatarType = uint32(varint(v))
		case num == 3 && typ == protowire.BytesType:
			key, value, err := decodePropMapEntry(v)
			if err != nil {
				return err
			}
			if avatar.Properties == nil {
				avatar.Properties = make(map[uint32]int64)
			}
			avatar.Properties[key] = value
		case num == 4 && typ == protowire.BytesType:
			key, value, err := decodeUint32MapEntry(v)
			if err != nil {
				return err
			}
			if avatar.SkillLevels == nil {
				avatar.SkillLevels = make(map[uint32]uint32)
			}
			avatar.SkillLevels[key] = value
		case num == 5 && typ == protowire.VarintType:
			avatar.TalentIDs = append(avatar.TalentIDs, uint32(varint(v)))
		case num == 6 && typ == protowire.VarintType:
			avatar.EquipGUIDs = append(avatar.EquipGUIDs, varint(v))
		}
		return nil
	})
	return avatar, err
}

func decodeAchievementList(b []byte) ([]model.Achievement, error) {
	achievements := []model.Achievement{}
	err := eachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num == 1 && typ == protowire.BytesType {
			achievement, err := decodeAchievement(v)
			if err != nil {
				return err
			}
			achievements = append(achievements, achievement)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return achievements, nil
}

func decodeAchievement(b []byte) (model.Achievement, error) {
	var a model.Achievement
	err := eachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if typ != protowire.VarintType {
			return nil
		}
		switch num {
		case 1:
			a.ID = uint32(varint(v))
		case 2:
			a.Status = uint32(varint(v))
		case 3:
			a.CurrentProgress = uint32(varint(v))
		case 4:
			a.TotalProgress = uint32(varint(v))
		case 5:
			a.FinishTimestamp = uint32(varint(v))
		}
		return nil
	})
	return a, err
}

// decodeUint32MapEntry decodes one map<uint32, uint32> entry message.
func decodeUint32MapEntry(b []byte) (key, value uint32, err error) {
	err = eachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if typ != protowire.VarintType {
			return nil
		}
		switch num {
		case 1:
			key = uint32(varint(v))
		case 2:
			value = uint32(varint(v))
		}
		return nil
	})
	return key, value, err
}

// decodePropMapEntry decodes one map<uint32, PropValue> entry, where
// PropValue is a message whose field 1 is the integer value.
func decodePropMapEntry(b []byte) (key uint32, value int64, err error) {
	err = eachField(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch {
		case num == 1 && typ == protowire.VarintType:
			key = uint32(varint(v))
		case num == 2 && typ == protowire.BytesType:
			return eachField(v, func(num protowire.Number, typ protowire.Type, v []byte) error {
				if num == 1 && typ == protowire.VarintType {
					value = int64(varint(v))
				}
				return nil
			})
		}
		return nil
	})
	return key, value, err
}

// eachField walks every field of a wire-format message, handing the
// scalar bytes (varint encoding or length-delimited contents) to fn and
// skipping field types fn does not consume.
func eachField(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch typ {
		case protowire.VarintType:
			_, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if err := fn(num, typ, b[:n]); err != nil {
				return err
			}
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if err := fn(num, typ, v); err != nil {
				return err
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

func varint(b []byte) uint64 {
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0
	}
	return v
}
