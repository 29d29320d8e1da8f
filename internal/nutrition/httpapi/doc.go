// SPDX-License-Identifier: MPL-2.0

// Package httpapi serves the nutrition calculator and food recommender over
// HTTP. Register binds it to the application reference app:app.
package httpapi
