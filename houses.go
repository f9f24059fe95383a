package farmwatch

import (
	"time"

	"github.com/smartfarm/farmwatch/app"
)

const (
	ControlModeAuto   = "auto"
	ControlModeManual = "manual"
)

type House struct {
	Id          uint64    `db:"house_id" json:"houseId"`
	OwnerId     uint64    `db:"owner_id" json:"ownerId"`
	Name        string    `db:"name" json:"name"`
	ControlMode string    `db:"control_mode" json:"controlMode"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

type HouseCriteria struct {
	Id      uint64 `schema:"house_id" db:"house_id"`
	OwnerId uint64 `schema:"owner_id" db:"owner_id"`

	Limit int `schema:"limit"`
}

type Houses struct {
	db *app.Database
}

func NewHouses(fw *Farmwatch) *Houses {
	return &Houses{fw.Database}
}

func (houses *Houses) List(c HouseCriteria) ([]House, error) {
	var hs []House
	if err := houses.db.Match(&hs, "house", c); err != nil {
		return nil, err
	}

	return hs, nil
}

func (houses *Houses) Get(c HouseCriteria) (*House, error) {
	var h House
	if err := houses.db.MatchOne(&h, "house", c); err != nil {
		return nil, err
	}

	return &h, nil
}

//Ids returns every known house id, the scheduler sweep enumerates these.
func (houses *Houses) Ids() ([]uint64, error) {
	var ids []uint64
	if err := houses.db.Select(&ids, "SELECT house_id FROM house"); err != nil {
		return nil, err
	}

	return ids, nil
}

func (houses *Houses) SetControlMode(houseId uint64, mode string) error {
	_, err := houses.db.Exec("UPDATE house SET control_mode = ? WHERE house_id = ?", mode, houseId)
	return err
}
