// Package install activates themes for stores.
//
// Every store has a theme folder under uploads/stores/{storeID}/themes/ with one
// working copy per package it has ever installed. Catalog packages use their ID
// as the folder name and custom packages use "custom-" plus their ID.
//
// Installing a package deactivates whatever the store had active, removes other
// custom working copies, and seeds the package's working copy from the canonical
// files only when the copy has nothing in it yet. Uninstalling never deletes
// files, so edits survive until the package is installed again.
//
// The install_state table records which working copies have been seeded. Disk is
// only inspected when no row exists.
package install
