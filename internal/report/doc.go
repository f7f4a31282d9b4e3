// Package report renders an analysis summary for people: summary.json with
// undefined statistics as null, a limitations narrative, PNG figures and an
// interactive RSSI chart.
package report
