// SPDX-License-Identifier: MPL-2.0

// Package nutrition computes daily energy and macronutrient needs and
// recommends foods with similar macronutrient profiles from a dataset.
package nutrition
