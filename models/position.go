package models

type Position struct {
	PyramidID int `json:"pyramid_id"`
	TeamID    int `json:"team_id"`
	Row       int `json:"row"`
	Col       int `json:"col"`
}
