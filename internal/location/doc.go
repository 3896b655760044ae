// Package location manages rooms, the places climate sensors are assigned to.
//
// Room IDs are short lowercase slugs ("salon", "chambre-1"); Slugify derives
// one from a display name. The SQLite repository reads and writes the rooms
// table created by the migrations package.
package location
